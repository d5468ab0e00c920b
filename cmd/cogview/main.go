// Command cogview views georeferenced rasters in a terminal.
package main

import "log"

func main() {
	log.SetFlags(0)
	log.SetPrefix("cogview: ")
	Execute()
}
