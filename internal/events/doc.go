// Package events provides the message types exchanged between the
// processing pipeline and its observers, and Bus, a lossy in-process
// broadcast topic. Publishing never blocks the producer: messages are
// dropped, and counted, when there is no subscriber or a subscriber falls
// behind.
package events
