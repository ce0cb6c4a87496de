// Package discovery finds Arcam receivers on the local network.
//
// Two independent paths are provided. Broadcast sends the AMX Duet
// identification query over UDP and collects the AMXB beacon replies;
// this is what AMX control systems do and every networked Arcam answers
// it. Browser watches mDNS for receivers that advertise themselves,
// which newer HDA-generation firmware does.
//
// Both paths produce Receiver values carrying the address to hand to the
// client and whatever identity the device disclosed.
package discovery
