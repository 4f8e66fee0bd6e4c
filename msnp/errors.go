package msnp

import "errors"

// Protocol and connection errors. Operations wrap these with context via
// fmt.Errorf and %w; callers branch with errors.Is.
var (
	// ErrResolution means DNS returned no address for the given host.
	ErrResolution = errors.New("could not resolve server name")

	// ErrCouldNotConnectToServer means the TCP connect itself failed.
	ErrCouldNotConnectToServer = errors.New("could not connect to the server")

	// ErrProtocolNotSupported is returned when the VER reply offers a
	// dialect other than MSNP11.
	ErrProtocolNotSupported = errors.New("protocol version not supported by the server")

	ErrAuthenticationHeaderNotFound    = errors.New("authentication header not found")
	ErrCouldNotGetAuthenticationString = errors.New("could not get authentication string")

	// ErrServerIsBusy maps numeric replies 911, 923, 928 and 931.
	ErrServerIsBusy = errors.New("server is too busy")

	// ErrServer maps numeric replies in the 500 range plus 601, 603, 910,
	// 921 and friends.
	ErrServer = errors.New("server returned an error")

	// ErrInvalidArgument maps numeric replies 201, 215, 216, 224, 225,
	// 226, 228 and 230.
	ErrInvalidArgument = errors.New("invalid argument in command")

	// ErrInvalidContact maps numeric reply 208.
	ErrInvalidContact = errors.New("command refers to an invalid contact")

	// ErrContactIsOffline maps numeric replies 216 and 217 on CAL.
	ErrContactIsOffline = errors.New("contact is offline")

	// ErrMessageNotDelivered maps NAK and numeric reply 282 on MSG.
	ErrMessageNotDelivered = errors.New("message was not delivered to all recipients")

	ErrNotLoggedIn  = errors.New("not logged in")
	ErrDisconnected = errors.New("lost connection to the server")
	ErrReceiving    = errors.New("error receiving data")
	ErrTransmitting = errors.New("error transmitting data")

	ErrCouldNotGetSessionID = errors.New("session id not set")
	ErrCouldNotSetSessionID = errors.New("could not set session id")

	// ErrBinaryHeaderReading means a P2P message carried fewer than 48
	// bytes of binary header.
	ErrBinaryHeaderReading = errors.New("could not read P2P binary header")
)

// Parser errors.
var (
	// ErrParseMsnpPartial indicates the stream holds an incomplete command
	// and more data must be written before parsing can continue.
	ErrParseMsnpPartial = errors.New("MSNP partial data")
)
