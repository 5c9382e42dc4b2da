// Package iccx drives ICCA/ICCB/ICCC card reader nodes on an ACIO bus.
//
// A Controller owns the session of one node. Mechanical slot readers
// (unencrypted mode) get their slot opened, locked and ejected according
// to the sensor feedback of every poll. Contactless readers (encrypted
// mode) run a key exchange at init and return CRC protected poll blocks.
package iccx
