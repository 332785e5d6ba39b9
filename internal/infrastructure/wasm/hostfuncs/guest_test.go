package hostfuncs

// Minimal hand-assembled guest:
//
//	(module
//	  (import "egress_host" "socket_addr_check" (func $check (param i64 i32) (result i32)))
//	  (memory (export "memory") 1)
//	  (func (export "check") (param i64 i32) (result i32)
//	    local.get 0 local.get 1 call $check)
//	  (data (i32.const 0) "<data>"))
func guestModule(data string) []byte {
	uleb := func(n int) []byte {
		var out []byte
		for {
			b := byte(n & 0x7f)
			n >>= 7
			if n == 0 {
				return append(out, b)
			}
			out = append(out, b|0x80)
		}
	}
	vec := func(s string) []byte {
		return append(uleb(len(s)), s...)
	}
	section := func(id byte, contents ...[]byte) []byte {
		var body []byte
		for _, c := range contents {
			body = append(body, c...)
		}
		return append(append([]byte{id}, uleb(len(body))...), body...)
	}

	mod := []byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00}
	// type 0: (i64, i32) -> i32
	mod = append(mod, section(0x01, []byte{0x01, 0x60, 0x02, 0x7e, 0x7f, 0x01, 0x7f})...)
	mod = append(mod, section(0x02, []byte{0x01}, vec(ModuleName), vec("socket_addr_check"), []byte{0x00, 0x00})...)
	mod = append(mod, section(0x03, []byte{0x01, 0x00})...)
	mod = append(mod, section(0x05, []byte{0x01, 0x00, 0x01})...)
	mod = append(mod, section(0x07,
		[]byte{0x02},
		vec("memory"), []byte{0x02, 0x00},
		vec("check"), []byte{0x00, 0x01})...)
	body := []byte{0x00, 0x20, 0x00, 0x20, 0x01, 0x10, 0x00, 0x0b}
	mod = append(mod, section(0x0a, []byte{0x01}, uleb(len(body)), body)...)
	if data != "" {
		mod = append(mod, section(0x0b, []byte{0x01, 0x00, 0x41, 0x00, 0x0b}, vec(data))...)
	}
	return mod
}
