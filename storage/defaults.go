package storage

import "runtime"

const (
	defaultQueueConcurrency = 8
	queuePerCPU             = 10
	maxQueueConcurrency     = 128
)

func defaultQueueConcurrencyForHost() int {
	return queueConcurrencyForCPU(runtime.GOMAXPROCS(0))
}

// queueConcurrencyForCPU scales parallel queue sends with the CPU budget.
func queueConcurrencyForCPU(cpu int) int {
	if cpu < 1 {
		return defaultQueueConcurrency
	}
	return min(cpu*queuePerCPU, maxQueueConcurrency)
}
