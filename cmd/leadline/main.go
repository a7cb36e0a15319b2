// Package main is the entry point for LeadLine.
package main

func main() {
	Execute()
}
