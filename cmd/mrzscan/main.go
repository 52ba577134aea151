// Command mrzscan reads passport MRZs from still images and video files with
// the same recognizer and matcher the worker uses.
package main

func main() {
	Execute()
}
