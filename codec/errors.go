package codec

import "github.com/pkg/errors"

var (
	// ErrUnsupportedAddress is returned for ERC-7930 blobs whose version or
	// chain type is not the EVM profile this solver speaks.
	ErrUnsupportedAddress = errors.New("unsupported address version or chain type")

	// ErrMalformedValue is returned when a wrapped ABI value has a bad
	// length header, padding, or is too short for either shape.
	ErrMalformedValue = errors.New("malformed abi-encoded value")

	// ErrDuplicateAttribute is returned when a singleton attribute appears
	// more than once on a step.
	ErrDuplicateAttribute = errors.New("duplicate singleton attribute")

	// ErrIndexOverflow is returned for wire integers above the safe-integer
	// ceiling shared with the protocol's reference tooling.
	ErrIndexOverflow = errors.New("integer exceeds safe range")

	// ErrBadSelector is returned when a selector is not exactly 4 bytes.
	ErrBadSelector = errors.New("selector must be 4 bytes")

	// ErrUnknownEntity is returned when an entity blob's selector matches no
	// known kind tag.
	ErrUnknownEntity = errors.New("unknown entity kind")
)
