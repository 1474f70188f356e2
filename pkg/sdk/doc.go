// Package sdk is the high-level façade of the payment and attribution ledger.
//
// A Core is constructed from a validated config and a token custody
// implementation, and exposes the full surface: model registration, prepaid
// deposits and withdrawals, payment processing, earnings withdrawal, relayer
// receipt submission and verification, and the event stream.
//
//	cust := custody.NewInMemory(platformAccount)
//	core, err := sdk.New(&config.Config{
//		PlatformFeeBps: 1000,
//		Treasury:       treasury,
//	}, cust)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer core.Close()
//
// See the examples directory for complete prepaid and attributed flows.
package sdk
