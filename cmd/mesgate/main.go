// Package main is the entry point for mesgate.
package main

func main() {
	Execute()
}
