package ttl

// BankRecord is the persisted enable flag of a bank.
type BankRecord struct {
	Number  int  `yaml:"number" json:"number"`
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// BitRecord is the persisted value of a bit.
type BitRecord struct {
	Number int  `yaml:"number" json:"number"`
	State  bool `yaml:"state" json:"state"`
}

// Persisted is the part of the panel state kept in the configuration tree.
type Persisted struct {
	Type  string       `yaml:"type" json:"type"`
	Banks []BankRecord `yaml:"banks" json:"banks"`
	Bits  []BitRecord  `yaml:"bits" json:"bits"`
}
