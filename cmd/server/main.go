// Command wfe runs the workflow engine HTTP service and its maintenance tasks
package main

func main() {
	Execute()
}
