// Copyright 2025 Joseph Cumines
//
// Operator diagnostics CLI for the browser-use stack

package main

func main() {
	Execute()
}
