package common

// DefaultServerPort is the port the server listens on if none is specified
const DefaultServerPort = 4433

// DefaultMaxDatagramSize matches the initial packet size quic-go uses for IPv4
const DefaultMaxDatagramSize = 1252
