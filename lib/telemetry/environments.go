package telemetry

import (
	"context"
	"sync"
)

var (
	testMu           sync.Mutex
	testEnvironments = map[string]bool{}
)

// SetupForTesting sets up telemetry once per service name, the returned
// function shuts it down.
func SetupForTesting(serviceName string) func() {
	testMu.Lock()
	defer testMu.Unlock()

	if testEnvironments[serviceName] {
		return func() {}
	}
	testEnvironments[serviceName] = true

	InitSlog(true)
	err := SetupFromEnv(context.Background(), serviceName)
	if err != nil {
		panic(err)
	}

	return func() {
		testMu.Lock()
		defer testMu.Unlock()
		delete(testEnvironments, serviceName)

		err := Shutdown(context.Background())
		if err != nil {
			panic(err)
		}
	}
}
