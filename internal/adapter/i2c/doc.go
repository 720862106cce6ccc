// Package i2c implements the bus adapter for SupMCU modules. The bus master
// is a Linux i2c-dev device ("kubos" i2c_type) or an Excamera I2CDriver on a
// USB serial port ("i2cdriver").
package i2c
