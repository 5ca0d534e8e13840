/*package thread contains functions useful for multi-threading. */
package thread

import (
	"runtime"
)

// Set sets the number of OS threads the process may use. n = -1 means "use
// every core on the node".
func Set(n int) {
	if n == -1 {
		n = runtime.NumCPU()
	}
	runtime.GOMAXPROCS(n)
}
