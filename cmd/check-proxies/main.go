// Command check-proxies probes every proxy in the configured pool against a
// public IP echo service and prints which ones are alive.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"arbrelay/internal/pkg/config"
	"arbrelay/internal/proxy"
)

const probeURL = "https://api.ipify.org"

type result struct {
	proxy string
	ip    string
	err   error
	took  time.Duration
}

func main() {
	timeout := flag.Duration("timeout", 15*time.Second, "per-proxy probe timeout")
	workers := flag.Int("workers", 8, "concurrent probes")
	flag.Parse()

	_ = godotenv.Load()
	settings := config.LoadSettings()

	pool := proxy.NewPool(proxy.Options{
		Inline:       settings.ProxyPool,
		FilePath:     settings.ProxyPoolFile,
		AllowSchemes: settings.ProxySchemes,
	})
	proxies := pool.All()
	if len(proxies) == 0 {
		fmt.Println("proxy pool is empty (set PROXY_POOL or PROXY_POOL_FILE)")
		return
	}
	fmt.Printf("Probing %d proxies against %s\n\n", len(proxies), probeURL)

	jobs := make(chan string)
	results := make(chan result)

	var wg sync.WaitGroup
	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				results <- probe(p, *timeout)
			}
		}()
	}
	go func() {
		for _, p := range proxies {
			jobs <- p
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	alive := 0
	for r := range results {
		if r.err != nil {
			fmt.Printf("✗ %-50s %v\n", proxy.Mask(r.proxy), r.err)
			continue
		}
		alive++
		fmt.Printf("✓ %-50s ip=%s (%s)\n", proxy.Mask(r.proxy), r.ip, r.took.Round(time.Millisecond))
	}
	fmt.Printf("\n%d/%d alive\n", alive, len(proxies))
	if alive == 0 {
		os.Exit(1)
	}
}

func probe(proxyURL string, timeout time.Duration) result {
	start := time.Now()
	u, err := url.Parse(proxyURL)
	if err != nil {
		return result{proxy: proxyURL, err: err}
	}

	client := &http.Client{
		Timeout:   timeout,
		Transport: &http.Transport{Proxy: http.ProxyURL(u)},
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return result{proxy: proxyURL, err: err}
	}

	resp, err := client.Do(req)
	if err != nil {
		return result{proxy: proxyURL, err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return result{proxy: proxyURL, err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return result{proxy: proxyURL, err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return result{proxy: proxyURL, ip: string(body), took: time.Since(start)}
}
