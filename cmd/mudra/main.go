// Command mudra controls the system volume with a thumb and index finger pinch
// seen by the webcam.
package main

func main() {
	Execute()
}
