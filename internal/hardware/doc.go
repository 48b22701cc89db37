// Package hardware provides HardwareChannel drivers for ESC banks.
//
//   - SerialChannel writes "<id>=<pulse>us" lines to a serial servo bridge or
//     to a servoblaster-style device file.
//   - PCA9685Channel drives a PCA9685 I²C PWM board directly.
//
// Channels are not safe for concurrent use; the actuation loop is their only
// writer.
package hardware
