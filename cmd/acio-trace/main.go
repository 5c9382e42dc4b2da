package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robotalks/wavepass.go/pkg/acio"
	"github.com/robotalks/wavepass.go/pkg/trace"

	// code names
	_ "github.com/robotalks/wavepass.go/pkg/iccx"
)

var (
	session    string
	dir        string
	node       = -1
	code       string
	errorsOnly bool
	since      string
	until      string
	outputJSON bool
)

func init() {
	flag.StringVar(&session, "session", session, "Only events of the session.")
	flag.StringVar(&dir, "dir", dir, "Only events of direction: send or recv.")
	flag.IntVar(&node, "node", node, "Only events of the node, -1 for all.")
	flag.StringVar(&code, "code", code, "Only events of the command code, e.g. 0x0134.")
	flag.BoolVar(&errorsOnly, "errors", errorsOnly, "Only events with errors.")
	flag.StringVar(&since, "since", since, "Only events at or after the time (RFC3339).")
	flag.StringVar(&until, "until", until, "Only events before the time (RFC3339).")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print events in JSON.")
}

func parseFilter() (f trace.Filter, err error) {
	f.Session, f.ErrorOnly = session, errorsOnly
	switch strings.ToLower(dir) {
	case "":
	case "send":
		f.Dir = acio.DirSend
	case "recv":
		f.Dir = acio.DirRecv
	default:
		return f, fmt.Errorf("invalid direction: %q", dir)
	}
	if node >= 0 {
		if node > 0xff {
			return f, fmt.Errorf("invalid node: %d", node)
		}
		addr := byte(node)
		f.Node = &addr
	}
	if code != "" {
		val, err := strconv.ParseUint(code, 0, 16)
		if err != nil {
			return f, fmt.Errorf("invalid code: %q", code)
		}
		f.Code = acio.Code(val)
	}
	if since != "" {
		if f.TimeStart, err = time.Parse(time.RFC3339, since); err != nil {
			return f, err
		}
	}
	if until != "" {
		if f.TimeEnd, err = time.Parse(time.RFC3339, until); err != nil {
			return f, err
		}
	}
	return f, nil
}

func main() {
	flag.Parse()
	if flag.NArg() == 0 {
		log.Fatalln("trace file required")
	}
	filter, err := parseFilter()
	if err != nil {
		log.Fatalln(err)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, fn := range flag.Args() {
		r, err := trace.NewFilteredReader(fn, filter)
		if err != nil {
			log.Fatalln(err)
		}
		for {
			ev, err := r.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				log.Fatalf("%s: %v", fn, err)
			}
			if outputJSON {
				enc.Encode(ev)
			} else {
				fmt.Println(ev.String())
			}
		}
		r.Close()
	}
}
