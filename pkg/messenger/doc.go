/*
Package messenger provides ports.Messenger implementations.

Templates is the shared registry every implementation builds on: messages are
registered under a key and sending an unknown key fails with
domain.ErrMessageNotRegistered. Console prints deliveries for humans,
Recorder keeps them for inspection, and Multi fans out to several messengers.
*/
package messenger
