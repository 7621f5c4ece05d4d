//go:build amd64

package math32

import "golang.org/x/sys/cpu"

func init() {
	useWide = cpu.X86.HasAVX2 || cpu.X86.HasAVX512F
	selectKernels()
}
