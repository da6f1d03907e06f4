package dispatch

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Proxies", Label("proxy"), func() {
	var e *engine
	var c *counter

	BeforeEach(func() {
		e = newTestEngine()
		c = &counter{value: 12}
	})

	AfterEach(func() {
		Expect(e.CountHandles()).To(Equal(0))
	})

	When("the proxy forwards to a delegate", func() {
		It("behaves like the delegate", func() {
			p := e.ObjectProxy(c)
			Expect(p.Delegate()).To(BeIdenticalTo(c))
			Expect(p.Target()).To(BeIdenticalTo(c))

			direct, err := e.Perform(ctx, c, "value")
			Expect(err).To(BeNil())
			proxied, err := e.Perform(ctx, p, "value")
			Expect(err).To(BeNil())
			Expect(proxied).To(Equal(direct))

			proxied, err = e.Perform(ctx, p, "echo", c)
			Expect(err).To(BeNil())
			Expect(proxied).To(BeIdenticalTo(c))
		})

		It("passes mixed arguments unchanged", func() {
			other := &counter{}
			_, err := e.Perform(ctx, c, "record", int8(-3), float32(0.25))
			Expect(err).To(BeNil())
			_, err = e.Perform(ctx, e.ObjectProxy(other), "record", int8(-3), float32(0.25))
			Expect(err).To(BeNil())

			Expect(other.lastN).To(Equal(c.lastN))
			Expect(other.lastF).To(Equal(c.lastF))
			Expect(other.lastN).To(Equal(int32(-3)))
		})

		It("answers with the signatures of the delegate", func() {
			p := e.ObjectProxy(c)
			sig, err := e.SignatureForSelector(p, "scale")
			Expect(err).To(BeNil())
			Expect(sig.Encoding()).To(Equal("d@:id"))
			Expect(e.RespondsToSelector(p, "scale")).To(BeTrue())
			Expect(e.RespondsToSelector(p, "missing")).To(BeFalse())
		})

		It("does not recognize selectors the delegate is missing", func() {
			_, err := e.Perform(ctx, e.ObjectProxy(c), "missing")
			Expect(err).To(MatchError(ErrDoesNotRecognizeSelector))

			_, err = e.Perform(ctx, e.ObjectProxy(nil), "value")
			Expect(err).To(MatchError(ErrDoesNotRecognizeSelector))
		})

		It("forwards invocations dispatched to it", func() {
			p := e.ObjectProxy(c)
			inv, err := e.NewInvocation(p, "add")
			Expect(err).To(BeNil())
			Expect(inv.SetArguments(20, 22)).To(Succeed())
			Expect(inv.Dispatch(ctx)).To(Succeed())
			Expect(inv.ReturnValue()).To(Equal(int32(42)))
			Expect(inv.Target()).To(BeIdenticalTo(p))
		})

		It("forwards to another proxy", func() {
			p := e.ObjectProxy(e.ObjectProxy(c))
			res, err := e.Perform(ctx, p, "add", 1, 2)
			Expect(err).To(BeNil())
			Expect(res).To(Equal(int32(3)))
		})
	})

	When("the proxy has a handler", func() {
		It("hands every call to the handler", func() {
			var seen []Selector
			p := e.NewHandlerProxy(func(ctx context.Context, inv *Invocation) error {
				seen = append(seen, inv.Selector())
				Expect(inv.Target()).To(BeNil())
				return inv.SetReturnValue(42)
			}, nil)

			res, err := e.Perform(ctx, p, "anything")
			Expect(err).To(BeNil())
			Expect(res).To(Equal(42))

			res, err = e.Perform(ctx, p, "somethingElse", int32(1), "two")
			Expect(err).To(BeNil())
			Expect(res).To(Equal(42))

			Expect(seen).To(Equal([]Selector{"anything", "somethingElse"}))
		})

		It("infers the signature from the arguments", func() {
			var encoding string
			p := e.NewHandlerProxy(func(ctx context.Context, inv *Invocation) error {
				encoding = inv.Signature().Encoding()
				return nil
			}, nil)

			_, err := e.Perform(ctx, p, "anything", int32(1), c)
			Expect(err).To(BeNil())
			Expect(encoding).To(Equal("@@:i@"))

			_, err = e.Perform(ctx, p, "anything")
			Expect(err).To(BeNil())
			Expect(encoding).To(Equal("@@:"))
		})

		It("uses the declared signature", func() {
			declared, err := ParseSignature("i@:")
			Expect(err).To(BeNil())
			p := e.NewHandlerProxy(func(ctx context.Context, inv *Invocation) error {
				return inv.SetReturnValue(42)
			}, declared)

			sig, err := e.SignatureForSelector(p, "anything")
			Expect(err).To(BeNil())
			Expect(sig).To(BeIdenticalTo(declared))

			res, err := e.Perform(ctx, p, "anything")
			Expect(err).To(BeNil())
			Expect(res).To(Equal(int32(42)))
		})

		It("lets the handler change the invocation before dispatching it", func() {
			p := e.ObjectProxyWithHandler(c, func(ctx context.Context, inv *Invocation) error {
				Expect(inv.Target()).To(BeIdenticalTo(c))
				if err := inv.SetArgument(0, 100); err != nil {
					return err
				}
				return inv.Dispatch(ctx)
			})
			Expect(p.Target()).To(BeIdenticalTo(c))
			Expect(p.Delegate()).To(BeNil())

			res, err := e.Perform(ctx, p, "add", 1, 2)
			Expect(err).To(BeNil())
			Expect(res).To(Equal(int32(102)))
		})

		It("uses the signatures of the target", func() {
			var encoding string
			p := e.ObjectProxyWithHandler(c, func(ctx context.Context, inv *Invocation) error {
				encoding = inv.Signature().Encoding()
				if inv.Selector() == "unknown" {
					return inv.SetReturnValue("handled")
				}
				return nil
			})

			res, err := e.Perform(ctx, p, "scale", 1, 2.0)
			Expect(err).To(BeNil())
			Expect(encoding).To(Equal("d@:id"))
			Expect(res).To(Equal(0.0))

			res, err = e.Perform(ctx, p, "unknown")
			Expect(err).To(BeNil())
			Expect(encoding).To(Equal("@@:"))
			Expect(res).To(Equal("handled"))
		})

		It("forwards to the target when no handler is given", func() {
			p := e.ObjectProxyWithHandler(c, nil)
			Expect(p.Delegate()).To(BeIdenticalTo(c))

			res, err := e.Perform(ctx, p, "value")
			Expect(err).To(BeNil())
			Expect(res).To(Equal(int32(12)))
		})

		It("returns the errors of the handler", func() {
			p := e.ObjectProxyWithHandler(c, func(ctx context.Context, inv *Invocation) error {
				return errFailed
			})
			_, err := e.Perform(ctx, p, "value")
			Expect(err).To(MatchError(errFailed))
		})

		It("copies the result back into dispatched invocations", func() {
			p := e.ObjectProxyWithHandler(c, func(ctx context.Context, inv *Invocation) error {
				return inv.SetReturnValue(7)
			})

			inv, err := e.NewInvocation(p, "value")
			Expect(err).To(BeNil())
			Expect(inv.Dispatch(ctx)).To(Succeed())
			Expect(inv.ReturnValue()).To(Equal(int32(7)))
			Expect(inv.Target()).To(BeIdenticalTo(p))
		})
	})
})
