// Package processor implements the payment state machine for paid API
// invocations.
//
// # Lifecycle
//
// Each request moves through Received → Validated → Routed → Distributed →
// Recorded, or terminates in Rejected from any state before Distributed:
//
//  1. The model is looked up and must exist and be active.
//  2. The amount must cover the model price and the deadline must not have
//     passed; a supplied attribution list is validated.
//  3. The payment identity, a deterministic hash of model ID, input hash,
//     payer, deadline and (when present) the attribution list, is recorded in
//     the processed set. A known identity rejects the request; resubmission
//     requires a fresh deadline, which produces a new identity.
//  4. The payment is routed: when the payer's prepaid balance covers the
//     amount it is debited, otherwise the authorization proof is verified and
//     the amount is pulled into custody.
//  5. The gross amount is distributed between the platform treasury and the
//     recipients (the model owner by default, or the attribution list).
//  6. The model's usage counters are updated and PaymentProcessed is emitted.
//
// # Atomicity
//
// The whole sequence runs under the processor's payment mutex: either every
// effect of a payment is applied, or none is. The dedup identity is inserted
// before the externally-fallible routing step and rolled back if routing
// fails, so a concurrent duplicate is rejected mid-processing while a failed
// payment leaves no trace.
//
// # Usage
//
//	proc := processor.NewProcessor(cfg, reg, led, engine, auth, cust, bus)
//	res, err := proc.Pay(ctx, processor.Request{
//		ModelID:   "weather-v1",
//		InputHash: crypto.Keccak256Hash(input),
//		Payer:     payer,
//		Amount:    big.NewInt(50000),
//		Deadline:  uint64(time.Now().Add(5 * time.Minute).Unix()),
//	})
package processor
