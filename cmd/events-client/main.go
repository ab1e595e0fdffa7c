// Command events-client tails the engine's TCP event stream, optionally
// narrowed to a set of event types. Useful when poking at the API with
// curl in a second terminal.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"sort"
	"strings"
	"time"

	"couponhub/internal/events"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:7070", "TCP event server address")
	raw := flag.Bool("raw", false, "print the wire JSON instead of formatted lines")
	types := flag.String("types", "", "comma-separated event types to subscribe to (empty for all)")
	flag.Parse()

	for {
		if err := run(*addr, *raw, *types); err != nil {
			log.Printf("[events-client] disconnected: %v", err)
		}
		time.Sleep(1 * time.Second) // auto reconnect
	}
}

func run(addr string, raw bool, types string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	log.Printf("[events-client] connected to %s", addr)
	if types != "" {
		if _, err := fmt.Fprintf(conn, "subscribe %s\n", types); err != nil {
			return err
		}
	}

	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		line := sc.Bytes()
		if raw {
			fmt.Println(string(line))
			continue
		}
		var evt events.Event
		if err := json.Unmarshal(line, &evt); err != nil {
			// not JSON? print raw
			fmt.Println(string(line))
			continue
		}
		fmt.Println(format(evt))
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return os.ErrClosed
}

// format renders one event per line, data keys in sorted order so the
// output is stable.
func format(evt events.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-17s", evt.At.Local().Format("15:04:05"), evt.Type)
	keys := make([]string, 0, len(evt.Data))
	for k := range evt.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, evt.Data[k])
	}
	if evt.Message != "" {
		fmt.Fprintf(&b, " %q", evt.Message)
	}
	return b.String()
}
