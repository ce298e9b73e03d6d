// trackerctl queries a running trackerd over its status listener.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

var (
	addr    = flag.String("addr", "127.0.0.1:9101", "trackerd metrics listener address")
	rawJSON = flag.Bool("json", false, "Print the raw status document")
	timeout = flag.Duration("timeout", 5*time.Second, "Request timeout")
	version = flag.Bool("version", false, "Show version information")
)

const AppVersion = "1.0.0"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("trackerctl version %s\n", AppVersion)
		return
	}

	client := &http.Client{Timeout: *timeout}
	resp, err := client.Get(fmt.Sprintf("http://%s/status", *addr))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach trackerd at %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: reading status: %v\n", err)
		os.Exit(1)
	}

	if *rawJSON {
		fmt.Println(string(body))
		return
	}

	var status map[string]interface{}
	if err := json.Unmarshal(body, &status); err != nil {
		fmt.Fprintf(os.Stderr, "Error: malformed status document: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Device:            %v\n", status["device_id"])
	fmt.Printf("Uptime:            %vs\n", status["uptime_s"])
	fmt.Printf("Transport:         %v (%v)\n", status["active_bearer"], status["transport_state"])
	fmt.Printf("Failovers:         %v\n", status["failovers"])
	fmt.Printf("Sampling interval: %v\n", status["sampling_interval"])
	fmt.Printf("Buffer:            %v pending, %v dropped\n", status["buffer_depth"], status["buffer_dropped"])
}
