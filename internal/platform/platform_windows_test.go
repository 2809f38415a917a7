//go:build windows

package platform

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Windows", func() {
	It("should report a failed taskkill as a delivery error", func() {
		enumerate := func(context.Context, string, ...string) ([]byte, error) { return nil, nil }
		var gotArgs []string
		w := NewWindows(enumerate).WithSignalRunner(func(_ context.Context, name string, args ...string) ([]byte, error) {
			gotArgs = append([]string{name}, args...)
			return nil, errors.New("taskkill exited with code 128")
		})

		err := w.Signal(4242, Graceful)
		Expect(err).To(MatchError(ContainSubstring("exited with code 128")))
		Expect(gotArgs).To(Equal([]string{"taskkill", "/PID", "4242"}))
	})
})
