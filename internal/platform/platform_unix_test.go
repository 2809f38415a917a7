//go:build !windows

package platform

import (
	"context"
	"errors"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Unix", func() {
	It("should run lsof with the port arguments", func() {
		var gotName string
		var gotArgs []string
		u := NewUnix(func(_ context.Context, name string, args ...string) ([]byte, error) {
			gotName, gotArgs = name, args
			return []byte(lsofOutput), nil
		})

		listeners, err := u.Enumerate(context.Background(), []uint16{3000})
		Expect(err).NotTo(HaveOccurred())
		Expect(gotName).To(Equal("lsof"))
		Expect(gotArgs).To(ContainElements("-i", ":3000"))
		Expect(listeners).To(HaveLen(2))
		Expect(u.FiltersByPort()).To(BeTrue())
	})

	It("should report the test process alive and non-positive pids dead", func() {
		u := NewUnix(ExecRunner)
		Expect(u.IsAlive(os.Getpid())).To(BeTrue())
		Expect(u.IsAlive(0)).To(BeFalse())
		Expect(u.IsAlive(-1)).To(BeFalse())
	})

	Describe("runners", func() {
		It("should treat a non-zero exit as success for enumeration", func() {
			out, err := ExecRunner(context.Background(), "sh", "-c", "echo partial; exit 1")
			Expect(err).NotTo(HaveOccurred())
			Expect(string(out)).To(Equal("partial\n"))
		})

		It("should report a non-zero exit when delivery depends on it", func() {
			_, err := StrictRunner(context.Background(), "sh", "-c", "echo denied >&2; exit 3")
			Expect(err).To(MatchError(ContainSubstring("exited with code 3")))
			Expect(err).To(MatchError(ContainSubstring("denied")))
			Expect(errors.Is(err, ErrToolUnavailable)).To(BeFalse())
		})

		It("should report a missing tool as unavailable", func() {
			_, err := StrictRunner(context.Background(), "portkill-no-such-tool")
			Expect(errors.Is(err, ErrToolUnavailable)).To(BeTrue())
		})
	})
})
