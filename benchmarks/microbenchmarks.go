package benchmarks

// exitSequence ends every benchmark with exit(%rdi).
const exitSequence = `
	mov $60, %rax
	syscall
`

// GetMicrobenchmarks returns the standard set of microbenchmarks. Each one
// targets a specific part of the timing model.
func GetMicrobenchmarks() []Benchmark {
	return []Benchmark{
		arithmeticSequential(),
		dependencyChain(),
		memorySequential(),
		functionCalls(),
		branchTaken(),
		loopSimulation(),
		arraySum(),
		stackTraffic(),
		fibonacci(),
	}
}

// GetCoreBenchmarks returns a minimal set for quick validation: a loop,
// strided memory reads and branch-heavy code.
func GetCoreBenchmarks() []Benchmark {
	return []Benchmark{
		loopSimulation(),
		arraySum(),
		branchTaken(),
	}
}

// Independent adds spread over five registers.
func arithmeticSequential() Benchmark {
	src := "_start:\n"
	regs := []string{"%rdi", "%rsi", "%rdx", "%rcx", "%r8"}
	for i := 0; i < 20; i++ {
		src += "\tadd $1, " + regs[i%len(regs)] + "\n"
	}
	return Benchmark{
		Name:         "arithmetic_sequential",
		Description:  "20 independent ADD operations - measures ALU throughput",
		Source:       src + exitSequence,
		ExpectedExit: 4,
	}
}

func dependencyChain() Benchmark {
	src := "_start:\n"
	for i := 0; i < 20; i++ {
		src += "\tadd $1, %rdi\n"
	}
	return Benchmark{
		Name:         "dependency_chain",
		Description:  "20 dependent ADDs to %rdi - measures serial latency",
		Source:       src + exitSequence,
		ExpectedExit: 20,
	}
}

func memorySequential() Benchmark {
	return Benchmark{
		Name:        "memory_sequential",
		Description: "5 stores then 5 loads within one cache line",
		Source: `.data
buf: .skip 40

.text
_start:
	lea buf(%rip), %rbx
	movq $1, 0(%rbx)
	movq $2, 8(%rbx)
	movq $3, 16(%rbx)
	movq $4, 24(%rbx)
	movq $5, 32(%rbx)
	add 0(%rbx), %rdi
	add 8(%rbx), %rdi
	add 16(%rbx), %rdi
	add 24(%rbx), %rdi
	add 32(%rbx), %rdi
` + exitSequence,
		ExpectedExit: 15,
	}
}

func functionCalls() Benchmark {
	return Benchmark{
		Name:        "function_calls",
		Description: "5 call/ret pairs - measures stack traffic and return prediction",
		Source: `_start:
	call add_one
	call add_one
	call add_one
	call add_one
	call add_one
` + exitSequence + `
add_one:
	add $1, %rdi
	ret
`,
		ExpectedExit: 5,
	}
}

func branchTaken() Benchmark {
	src := "_start:\n"
	for i := 1; i <= 5; i++ {
		label := "b" + string(rune('0'+i))
		src += "\tjmp " + label + "\n"
		src += "\tadd $100, %rdi\n"
		src += label + ":\n"
		src += "\tadd $1, %rdi\n"
	}
	return Benchmark{
		Name:         "branch_taken",
		Description:  "5 taken unconditional jumps over dead code",
		Source:       src + exitSequence,
		ExpectedExit: 5,
	}
}

func loopSimulation() Benchmark {
	return Benchmark{
		Name:        "loop_simulation",
		Description: "10-iteration counted loop - measures predictor warm-up",
		Source: `_start:
	mov $10, %rcx
loop:
	add $2, %rdi
	dec %rcx
	jnz loop
` + exitSequence,
		ExpectedExit: 20,
	}
}

func arraySum() Benchmark {
	return Benchmark{
		Name:        "array_sum",
		Description: "Sum of 8 quads with scaled index addressing",
		Source: `.data
values: .quad 1, 2, 3, 4, 5, 6, 7, 8

.text
_start:
	lea values(%rip), %rbx
	xor %rcx, %rcx
sum:
	add (%rbx,%rcx,8), %rdi
	inc %rcx
	cmp $8, %rcx
	jne sum
` + exitSequence,
		ExpectedExit: 36,
	}
}

func stackTraffic() Benchmark {
	return Benchmark{
		Name:        "stack_traffic",
		Description: "4 pushes and 4 pops",
		Source: `_start:
	push $1
	push $2
	push $3
	push $4
	pop %rax
	add %rax, %rdi
	pop %rax
	add %rax, %rdi
	pop %rax
	add %rax, %rdi
	pop %rax
	add %rax, %rdi
` + exitSequence,
		ExpectedExit: 10,
	}
}

func fibonacci() Benchmark {
	return Benchmark{
		Name:        "fibonacci",
		Description: "Iterative fib(10) - mixed moves, adds and a loop branch",
		Source: `_start:
	mov $0, %rax
	mov $1, %rdx
	mov $10, %rcx
fib:
	mov %rdx, %rsi
	add %rax, %rsi
	mov %rdx, %rax
	mov %rsi, %rdx
	dec %rcx
	jnz fib
	mov %rax, %rdi
` + exitSequence,
		ExpectedExit: 55,
	}
}
