package main

import "github.com/staffhive/ms-go-payouts/cmd"

func main() {
	cmd.Execute()
}
