package eventbus

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestEventBus(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "EventBus Suite")
}

var _ = Describe("EventBus", func() {
	It("should deliver to every subscriber of a topic", func() {
		bus := NewEventBus(4)
		a := bus.Subscribe("t")
		b := bus.Subscribe("t")
		other := bus.Subscribe("u")

		Expect(bus.Publish("t", Event{Payload: 1})).To(Equal(2))
		Expect((<-a).Payload).To(Equal(1))
		Expect((<-b).Payload).To(Equal(1))
		Expect(other).To(BeEmpty())
	})

	It("should drop instead of blocking on a full subscriber", func() {
		bus := NewEventBus(1)
		ch := bus.Subscribe("t")
		Expect(bus.Publish("t", Event{Payload: 1})).To(Equal(1))
		Expect(bus.Publish("t", Event{Payload: 2})).To(Equal(0))
		Expect(bus.Dropped()).To(Equal(uint64(1)))
		Expect((<-ch).Payload).To(Equal(1))
	})

	It("should close the channel on unsubscribe", func() {
		bus := NewEventBus(1)
		ch := bus.Subscribe("t")
		bus.Unsubscribe("t", ch)
		_, open := <-ch
		Expect(open).To(BeFalse())
		Expect(bus.Publish("t", Event{})).To(Equal(0))
	})
})
