// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package annotation

// Beat type codes. The numeric codes follow the MIT-BIH annotation table, the
// letters are their ASCII mnemonics.
const (
	Normal                    = 1
	LeftBundleBranchBlock     = 2
	RightBundleBranchBlock    = 3
	AberratedAtrialPremature  = 4
	PrematureVentricular      = 5
	FusionVentricularNormal   = 6
	NodalPremature            = 7
	AtrialPremature           = 8
	SupraventricularPremature = 9
	VentricularEscape         = 10
	NodalEscape               = 11
	Paced                     = 12
)

var beatLetters = [256]bool{
	'N': true, 'L': true, 'R': true, 'A': true, 'a': true, 'J': true,
	'S': true, 'V': true, 'E': true, 'j': true, '/': true, 'f': true,
	'Q': true,
}

// IsBeat reports whether an annotation type code marks a QRS complex.
func IsBeat(code byte) bool {
	if code >= Normal && code <= Paced {
		return true
	}
	return beatLetters[code]
}
