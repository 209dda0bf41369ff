package main

import "fuel-price-alerts/internal/cli"

func main() {
	cli.Execute()
}
