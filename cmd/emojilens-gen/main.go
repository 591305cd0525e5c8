// emojilens-gen builds the emoji-data.json lexicon from Unicode's
// emoji-test.txt.
//
//	emojilens-gen -in emoji-test.txt -out internal/lexicon/emoji-data.json
//	emojilens-gen -url https://unicode.org/Public/emoji/15.1/emoji-test.txt
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"emojilens/internal/lexicon"
)

const defaultURL = "https://unicode.org/Public/emoji/15.1/emoji-test.txt"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("emojilens-gen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	in := fs.String("in", "", "local emoji-test.txt")
	url := fs.String("url", "", "download emoji-test.txt from this URL (default "+defaultURL+")")
	out := fs.String("out", "-", "output file, - for stdout")
	timeout := fs.Duration("timeout", 30*time.Second, "download timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *in != "" && *url != "" {
		fmt.Fprintln(stderr, "Usage: emojilens-gen [-in emoji-test.txt | -url URL] [-out path]")
		return 2
	}

	src, err := open(*in, *url, *timeout)
	if err != nil {
		fmt.Fprintf(stderr, "emojilens-gen: %v\n", err)
		return 1
	}
	defer src.Close()

	entries, err := lexicon.ParseEmojiTest(src)
	if err != nil {
		fmt.Fprintf(stderr, "emojilens-gen: %v\n", err)
		return 1
	}
	if len(entries) == 0 {
		fmt.Fprintln(stderr, "emojilens-gen: no fully-qualified entries found")
		return 1
	}

	var buf bytes.Buffer
	if err := lexicon.WriteJSON(&buf, entries); err != nil {
		fmt.Fprintf(stderr, "emojilens-gen: %v\n", err)
		return 1
	}

	// Loading the output validates it against the lexicon schema.
	lex, err := lexicon.Load(bytes.NewReader(buf.Bytes()))
	if err != nil {
		fmt.Fprintf(stderr, "emojilens-gen: generated data is invalid: %v\n", err)
		return 1
	}

	if err := write(*out, buf.Bytes(), stdout); err != nil {
		fmt.Fprintf(stderr, "emojilens-gen: %v\n", err)
		return 1
	}
	fmt.Fprintf(stderr, "wrote %d entries (%d bytes, digest %s)\n", lex.Len(), buf.Len(), lex.DigestHex())
	return 0
}

func open(in, url string, timeout time.Duration) (io.ReadCloser, error) {
	if in != "" {
		f, err := os.Open(in)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		return f, nil
	}
	if url == "" {
		url = defaultURL
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("download: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("download %s: %s", url, resp.Status)
	}
	return &cancelBody{ReadCloser: resp.Body, cancel: cancel}, nil
}

type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

func write(path string, data []byte, stdout io.Writer) error {
	if path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return os.Rename(tmp, path)
}
