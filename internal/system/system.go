package system

import (
	"fmt"
	"log"
	"runtime"
	"syscall"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// perWorkerBytes is a rough footprint of one file in flight: decoded input,
// obfuscated copy and blur scratch for a ~12 MP RGBA image.
const perWorkerBytes = 3 * 4 * 12_000_000

// InitResourceLimits raises the open file limit so that many workers can hold
// input and output files at once.
func InitResourceLimits() {
	var rLimit syscall.Rlimit
	err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		log.Printf("[!] Could not read open file limit: %v", err)
		return
	}

	rLimit.Cur = 2048
	if rLimit.Cur > rLimit.Max {
		rLimit.Cur = rLimit.Max
	}

	err = syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		log.Printf("[!] Could not raise open file limit: %v", err)
	} else {
		fmt.Printf("[*] Open file limit raised to %d\n", rLimit.Cur)
	}
}

// DefaultWorkers picks a worker count from the logical CPU count, lowered when
// available memory cannot hold that many images in flight.
func DefaultWorkers() int {
	workers, err := cpu.Counts(true)
	if err != nil || workers < 1 {
		workers = runtime.NumCPU()
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return workers
	}
	return capByMemory(workers, vm.Available)
}

func capByMemory(workers int, available uint64) int {
	fit := int(available / perWorkerBytes)
	if fit < workers {
		workers = fit
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}
