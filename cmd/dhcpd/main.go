// Package main provides the dhcpd command-line interface.
package main

func main() {
	Execute()
}
