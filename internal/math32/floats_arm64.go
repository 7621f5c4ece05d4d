//go:build arm64

package math32

import "golang.org/x/sys/cpu"

func init() {
	useWide = cpu.ARM64.HasASIMD
	selectKernels()
}
