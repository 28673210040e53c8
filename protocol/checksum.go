package protocol

// Checksum computes the RFC 1071 internet checksum over the concatenation
// of the given byte slices. A region whose stored checksum field is valid
// sums to zero.
func Checksum(regions ...[]byte) uint16 {
	var sum uint32
	odd := false
	var carry byte

	for _, region := range regions {
		i := 0
		if odd && len(region) > 0 {
			sum += uint32(carry)<<8 | uint32(region[0])
			i = 1
			odd = false
		}
		for ; i+1 < len(region); i += 2 {
			sum += uint32(region[i])<<8 | uint32(region[i+1])
		}
		if i < len(region) {
			carry = region[i]
			odd = true
		}
	}
	if odd {
		sum += uint32(carry) << 8
	}

	for sum>>16 != 0 {
		sum = sum&0xffff + sum>>16
	}
	return ^uint16(sum)
}
