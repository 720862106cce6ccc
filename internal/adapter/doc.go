// Package adapter defines the bus adapter interface used by the service.
//
// Bus adapters move SupMCU requests and responses between the service and the
// modules on an I2C bus. The IBusAdapter interface is the stable contract all
// adapters implement; transport errors are normalized to INVALID_RANGE, BUSY,
// UNAVAILABLE and INTERNAL.
package adapter
