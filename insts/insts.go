// Package insts provides x86-64 instruction and program definitions.
//
// This package describes the parsed form of an AT&T-syntax assembly program:
// sections holding labels, directives, symbol assignments and instructions.
// It also decodes textual mnemonics into structured opcodes:
//   - Data movement: MOV, LEA, PUSH, POP
//   - Arithmetic and logic: ADD, SUB, CMP, XOR, AND, OR, TEST, INC, DEC, NEG, NOT
//   - Control transfer: JMP, Jcc, CALL, RET, LEAVE, HLT, SYSCALL
//
// Usage:
//
//	decoder := insts.NewDecoder()
//	m := decoder.Decode("movq")
//	fmt.Printf("Op: %v, Suffix: %v\n", m.Op, m.Suffix)
package insts
