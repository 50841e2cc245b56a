package domain

var Tables = []interface{}{
	// System
	&SysConfig{},
	&PosUser{},
	&PosLog{},
	// Point of sale
	&Product{},
	&Transaction{},
	&TransactionItem{},
}
