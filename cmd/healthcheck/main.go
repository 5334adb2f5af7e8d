package main

import (
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

func main() {
	var (
		port    = flag.String("port", "", "HTTP port of the bot, defaults to HTTP_PORT or PORT")
		timeout = flag.Duration("timeout", 2*time.Second, "Request timeout")
		help    = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *help {
		fmt.Println("Usage: healthcheck [options]")
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	viper.AutomaticEnv()
	viper.SetDefault("PORT", "3007")
	if *port == "" {
		*port = viper.GetString("HTTP_PORT")
	}
	if *port == "" {
		*port = viper.GetString("PORT")
	}

	if err := check("http://"+net.JoinHostPort("127.0.0.1", *port)+"/health", *timeout); err != nil {
		log.Errorf("Health check failed: %v", err)
		os.Exit(1)
	}
	os.Exit(0)
}

func check(url string, timeout time.Duration) error {
	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
