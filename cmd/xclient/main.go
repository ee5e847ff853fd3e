// Command xclient is a small command line front end for the X web-API client.
package main

func main() {
	Execute()
}
