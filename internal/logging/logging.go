// ABOUTME: Flat key=value structured logging over the standard log package.
// ABOUTME: Every subsystem logs through Event instead of calling log.Printf directly.
package logging

import (
	"fmt"
	stdlog "log"
	"strings"
)

// Event logs one structured line: "component=<component> action=<action>
// k1=v1 k2=v2 ...". kv must be an even number of arguments, alternating
// key, value.
func Event(component, action string, kv ...any) {
	var b strings.Builder
	fmt.Fprintf(&b, "component=%s action=%s", component, action)
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	stdlog.Print(b.String())
}
