package ttl

import "github.com/pkg/errors"

// Data geometry.
const (
	// BankWidth is the number of lines in one bank.
	BankWidth = 8
	// MaxBanks is the number of banks of a panel.
	MaxBanks = 4
	// TotalBits is the number of addressable lines of a panel.
	TotalBits = BankWidth * MaxBanks
)

// Parameter index layout.
const (
	ParamBaseEnabled = 0
	ParamBaseOutput  = ParamBaseEnabled + MaxBanks
	ParamBaseBogus   = ParamBaseOutput + TotalBits
)

// ParamKind classifies a parameter index.
type ParamKind int

const (
	// KindInvalid is any index outside the bank enable and bit value ranges.
	KindInvalid ParamKind = iota
	// KindBankEnable is a bank enable flag.
	KindBankEnable
	// KindBitValue is a bit value flag.
	KindBitValue
)

func (k ParamKind) String() string {
	switch k {
	case KindBankEnable:
		return "bank enable"
	case KindBitValue:
		return "bit value"
	default:
		return "invalid"
	}
}

// BitAddress is a line addressed as bank and bit within the bank.
type BitAddress struct {
	Bank      int
	BitInBank int
}

// Global returns the global bit number of a.
func (a BitAddress) Global() (int, error) {
	return GlobalBitOf(a.Bank, a.BitInBank)
}

// Split converts a global bit number into a BitAddress.
func Split(bit int) (BitAddress, error) {
	if !validBit(bit) {
		return BitAddress{}, errors.Wrapf(ErrOutOfRange, "bit %d", bit)
	}
	return BitAddress{Bank: bit / BankWidth, BitInBank: bit % BankWidth}, nil
}

// BankOf returns the bank of a global bit.
func BankOf(bit int) (int, error) {
	a, err := Split(bit)
	return a.Bank, err
}

// BitInBankOf returns the position of a global bit within its bank.
func BitInBankOf(bit int) (int, error) {
	a, err := Split(bit)
	return a.BitInBank, err
}

// GlobalBitOf returns the global bit number of bit within bank.
func GlobalBitOf(bank, bit int) (int, error) {
	if !validBank(bank) {
		return 0, errors.Wrapf(ErrOutOfRange, "bank %d", bank)
	}
	if bit < 0 || bit >= BankWidth {
		return 0, errors.Wrapf(ErrOutOfRange, "bit %d in bank %d", bit, bank)
	}
	return bank*BankWidth + bit, nil
}

// ToParameterIndex returns the parameter index of the local index of kind.
func ToParameterIndex(kind ParamKind, local int) (int, error) {
	switch kind {
	case KindBankEnable:
		if !validBank(local) {
			return 0, errors.Wrapf(ErrOutOfRange, "bank %d", local)
		}
		return ParamBaseEnabled + local, nil
	case KindBitValue:
		if !validBit(local) {
			return 0, errors.Wrapf(ErrOutOfRange, "bit %d", local)
		}
		return ParamBaseOutput + local, nil
	default:
		return 0, errors.Wrapf(ErrUnknownParameterKind, "kind %d", kind)
	}
}

// FromParameterIndex classifies a parameter index. The local index is -1 for KindInvalid.
func FromParameterIndex(index int) (ParamKind, int) {
	switch {
	case index >= ParamBaseEnabled && index < ParamBaseOutput:
		return KindBankEnable, index - ParamBaseEnabled
	case index >= ParamBaseOutput && index < ParamBaseBogus:
		return KindBitValue, index - ParamBaseOutput
	default:
		return KindInvalid, -1
	}
}

func validBit(bit int) bool {
	return bit >= 0 && bit < TotalBits
}

func validBank(bank int) bool {
	return bank >= 0 && bank < MaxBanks
}

// bankMask returns the word mask of the lines of bank.
func bankMask(bank int) uint32 {
	return uint32(1<<BankWidth-1) << uint(bank*BankWidth)
}
