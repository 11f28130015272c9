// Package ledgerhid talks to a Ledger-class hardware signer over USB HID.
//
// Commands and answers follow the ISO/IEC 7816-4 APDU model. Each APDU is
// tunnelled through 64 byte HID reports by a Transport, which serialises access
// to its device. Payloads larger than one APDU body go through SendChunks. Code
// driving the device should depend on the Exchanger interface only, so that a
// MockExchanger can stand in for the hardware.
package ledgerhid
