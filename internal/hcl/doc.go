// Package hcl provides the HCL implementation of config.Loader. It is
// responsible for file discovery, parsing, translation of blocks into the
// format-agnostic view model, and cty-to-Go value conversion.
//
// A view file declares four kinds of blocks:
//
//	target "SWAP" "A" {
//	  attributes = { notional = 1000000, fixed_rate = 0.05, curve = "X" }
//	}
//
//	function "swap-pv" {
//	  target_type    = "SWAP"
//	  implementation = "rates.SwapPresentValue"
//	  output "PresentValue" {}
//	  input "DiscountFactor" {
//	    target = "CURVE~${target.attributes.curve}"
//	  }
//	}
//
//	requirement "PresentValue" {
//	  target = "SWAP~A"
//	}
//
//	market_data "DiscountFactor" {
//	  target = "CURVE~X"
//	  value  = 0.98
//	}
//
// Input targets are expressions evaluated once per target the function is
// applied to, with `target.type`, `target.id` and `target.attributes` in
// scope. They evaluate to one "TYPE~ID" string or a list of them.
package hcl
