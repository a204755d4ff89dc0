// Command miniprof serves, shows and demonstrates request profiles.
package main

import "github.com/sarchlab/miniprof/cmd/miniprof/cmd"

func main() {
	cmd.Execute()
}
