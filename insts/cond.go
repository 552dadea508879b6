package insts

// Cond represents an x86 condition code used by the jcc family.
type Cond uint8

// x86 condition codes. Aliases (equal/zero, below/carry, ...) are kept as
// distinct values so a program's spelling survives into the AST.
const (
	CondOverflow          Cond = iota // OF
	CondNotOverflow                   // !OF
	CondSign                          // SF
	CondNotSign                       // !SF
	CondEqual                         // ZF
	CondZero                          // ZF
	CondNotEqual                      // !ZF
	CondNotZero                       // !ZF
	CondBelow                         // CF
	CondNotAboveOrEqual               // CF
	CondCarry                         // CF
	CondAboveOrEqual                  // !CF
	CondNotBelow                      // !CF
	CondNotCarry                      // !CF
	CondBelowOrEqual                  // CF || ZF
	CondNotAbove                      // CF || ZF
	CondAbove                         // !CF && !ZF
	CondNotBelowOrEqual               // !CF && !ZF
	CondLess                          // SF != OF
	CondNotGreaterOrEqual             // SF != OF
	CondGreaterOrEqual                // SF == OF
	CondNotLess                       // SF == OF
	CondLessOrEqual                   // ZF || SF != OF
	CondNotGreater                    // ZF || SF != OF
	CondGreater                       // !ZF && SF == OF
	CondNotLessOrEqual                // !ZF && SF == OF
	CondParity                        // PF
	CondParityEven                    // PF
	CondNotParity                     // !PF
	CondParityOdd                     // !PF

	numConds
)

// AllConds returns every defined condition code.
func AllConds() []Cond {
	conds := make([]Cond, 0, numConds)
	for c := Cond(0); c < numConds; c++ {
		conds = append(conds, c)
	}
	return conds
}

var condSuffixes = map[string]Cond{
	"o":   CondOverflow,
	"no":  CondNotOverflow,
	"s":   CondSign,
	"ns":  CondNotSign,
	"e":   CondEqual,
	"z":   CondZero,
	"ne":  CondNotEqual,
	"nz":  CondNotZero,
	"b":   CondBelow,
	"nae": CondNotAboveOrEqual,
	"c":   CondCarry,
	"ae":  CondAboveOrEqual,
	"nb":  CondNotBelow,
	"nc":  CondNotCarry,
	"be":  CondBelowOrEqual,
	"na":  CondNotAbove,
	"a":   CondAbove,
	"nbe": CondNotBelowOrEqual,
	"l":   CondLess,
	"nge": CondNotGreaterOrEqual,
	"ge":  CondGreaterOrEqual,
	"nl":  CondNotLess,
	"le":  CondLessOrEqual,
	"ng":  CondNotGreater,
	"g":   CondGreater,
	"nle": CondNotLessOrEqual,
	"p":   CondParity,
	"pe":  CondParityEven,
	"np":  CondNotParity,
	"po":  CondParityOdd,
}

var condNames = map[Cond]string{}

func init() {
	for suffix, c := range condSuffixes {
		condNames[c] = suffix
	}
}

// String returns the jcc suffix of the condition, e.g. "ne".
func (c Cond) String() string {
	if s, ok := condNames[c]; ok {
		return s
	}
	return "?"
}
