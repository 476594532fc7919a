package codec

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/speedrun-hq/solver/models"
)

// ERC-7930 binary account format:
// version(2) || chainType(2) || len(1) || chainRef || len(1) || address
const (
	accountVersion   = 0x0001
	accountChainType = 0x0000

	addressLength = 20
)

// DecodeAccount parses an ERC-7930 chain-qualified address. Only the EVM
// profile (version 0x0001, chain type 0x0000) with a 20-byte address is
// accepted; the chain reference is a big-endian unsigned integer.
func DecodeAccount(blob []byte) (models.Account, error) {
	if len(blob) < 6 {
		return models.Account{}, errors.Wrapf(ErrUnsupportedAddress, "blob too short (%d bytes)", len(blob))
	}

	version := binary.BigEndian.Uint16(blob[0:2])
	chainType := binary.BigEndian.Uint16(blob[2:4])
	if version != accountVersion || chainType != accountChainType {
		return models.Account{}, errors.Wrapf(ErrUnsupportedAddress, "version 0x%04x chain type 0x%04x", version, chainType)
	}

	chainRefLen := int(blob[4])
	if len(blob) < 5+chainRefLen+1 {
		return models.Account{}, errors.Wrap(ErrUnsupportedAddress, "truncated chain reference")
	}
	if chainRefLen > 8 {
		return models.Account{}, errors.Wrapf(ErrUnsupportedAddress, "chain reference too wide (%d bytes)", chainRefLen)
	}

	chainID := new(big.Int).SetBytes(blob[5 : 5+chainRefLen]).Uint64()

	addrLen := int(blob[5+chainRefLen])
	rest := blob[5+chainRefLen+1:]
	if addrLen != addressLength || len(rest) != addressLength {
		return models.Account{}, errors.Wrapf(ErrUnsupportedAddress, "address length %d", addrLen)
	}

	return models.Account{
		Address: common.BytesToAddress(rest),
		ChainID: chainID,
	}, nil
}

// EncodeAccount serializes an account in ERC-7930 binary form with a
// minimal big-endian chain reference.
func EncodeAccount(account models.Account) []byte {
	chainRef := new(big.Int).SetUint64(account.ChainID).Bytes()
	if len(chainRef) == 0 {
		chainRef = []byte{0}
	}

	out := make([]byte, 0, 6+len(chainRef)+addressLength)
	out = binary.BigEndian.AppendUint16(out, accountVersion)
	out = binary.BigEndian.AppendUint16(out, accountChainType)
	out = append(out, byte(len(chainRef)))
	out = append(out, chainRef...)
	out = append(out, addressLength)
	out = append(out, account.Address.Bytes()...)

	return out
}
