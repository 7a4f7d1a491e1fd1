package asn1schema

// grammarSource is the textual module description compiled into the
// engine (spec.md §4.1 "Accepts a textual ASN.1 module"). It carries
// both the X.509 Certificate productions (spec.md §4.6) and the CMS
// SignedData productions (spec.md §4.7) in one module, because
// SignerInfo.sid reuses the certificate Name/RDN productions and the
// schema loader resolves references by name within a single enclosing
// module (spec.md §4.1).
//
// Supplementing the distilled spec.md §4.6 extension list: the
// GeneralName/DistributionPoint productions needed for
// CRLDistributionPoints and the SubjectAltName/IssuerAltName accessors
// are carried here too — present in libksba's cert.c extension tables
// (_examples/original_source) and named as accessors in spec.md §4.6
// but not spelled out as schema productions by the distillation.
const grammarSource = `
AlgorithmIdentifier ::= SEQUENCE {
	algorithm OBJECT IDENTIFIER,
	parameters ANY OPTIONAL
}

AttributeTypeAndValue ::= SEQUENCE {
	attrType OBJECT IDENTIFIER,
	attrValue ANY
}

RDN ::= SET OF AttributeTypeAndValue

Name ::= SEQUENCE OF RDN

Time ::= CHOICE {
	utcTime UTCTime,
	generalTime GeneralizedTime
}

Validity ::= SEQUENCE {
	notBefore Time,
	notAfter Time
}

SubjectPublicKeyInfo ::= SEQUENCE {
	algorithm AlgorithmIdentifier,
	subjectPublicKey BIT STRING
}

Extension ::= SEQUENCE {
	extnID OBJECT IDENTIFIER,
	critical BOOLEAN DEFAULT 0,
	extnValue OCTET STRING
}

Extensions ::= SEQUENCE OF Extension

TBSCertificate ::= SEQUENCE {
	version [0] EXPLICIT INTEGER DEFAULT 0,
	serialNumber INTEGER,
	signature AlgorithmIdentifier,
	issuer Name,
	validity Validity,
	subject Name,
	subjectPublicKeyInfo SubjectPublicKeyInfo,
	issuerUniqueID [1] IMPLICIT BIT STRING OPTIONAL,
	subjectUniqueID [2] IMPLICIT BIT STRING OPTIONAL,
	extensions [3] EXPLICIT Extensions OPTIONAL
}

Certificate ::= SEQUENCE {
	tbsCertificate TBSCertificate,
	signatureAlgorithm AlgorithmIdentifier,
	signatureValue BIT STRING
}

GeneralName ::= CHOICE {
	otherName [0] IMPLICIT ANY,
	rfc822Name [1] IMPLICIT IA5String,
	dNSName [2] IMPLICIT IA5String,
	directoryName [4] EXPLICIT Name,
	uniformResourceIdentifier [6] IMPLICIT IA5String,
	iPAddress [7] IMPLICIT OCTET STRING,
	registeredID [8] IMPLICIT OID
}

GeneralNames ::= SEQUENCE OF GeneralName

BasicConstraints ::= SEQUENCE {
	cA BOOLEAN DEFAULT 0,
	pathLenConstraint INTEGER OPTIONAL
}

KeyUsage ::= BIT STRING

PolicyQualifierInfo ::= SEQUENCE {
	policyQualifierId OBJECT IDENTIFIER,
	qualifier ANY
}

PolicyInformation ::= SEQUENCE {
	policyIdentifier OBJECT IDENTIFIER,
	policyQualifiers SEQUENCE OF PolicyQualifierInfo OPTIONAL
}

CertificatePolicies ::= SEQUENCE OF PolicyInformation

AuthorityKeyIdentifier ::= SEQUENCE {
	keyIdentifier [0] IMPLICIT OCTET STRING OPTIONAL,
	authorityCertIssuer [1] IMPLICIT GeneralNames OPTIONAL,
	authorityCertSerialNumber [2] IMPLICIT INTEGER OPTIONAL
}

DistributionPointName ::= CHOICE {
	fullName [0] IMPLICIT GeneralNames,
	nameRelativeToCRLIssuer [1] IMPLICIT RDN
}

DistributionPoint ::= SEQUENCE {
	distributionPoint [0] EXPLICIT DistributionPointName OPTIONAL,
	reasons [1] IMPLICIT BIT STRING OPTIONAL,
	cRLIssuer [2] IMPLICIT GeneralNames OPTIONAL
}

CRLDistributionPoints ::= SEQUENCE OF DistributionPoint

SubjectAltName ::= GeneralNames

IssuerAltName ::= GeneralNames

ContentInfo ::= SEQUENCE {
	contentType OBJECT IDENTIFIER,
	content [0] EXPLICIT ANY
}

EncapsulatedContentInfo ::= SEQUENCE {
	eContentType OBJECT IDENTIFIER,
	eContent [0] EXPLICIT OCTET STRING OPTIONAL
}

Attribute ::= SEQUENCE {
	attrType OBJECT IDENTIFIER,
	attrValues SET OF ANY
}

SignedAttributes ::= SET OF Attribute

IssuerAndSerialNumber ::= SEQUENCE {
	issuer Name,
	serialNumber INTEGER
}

SignerInfo ::= SEQUENCE {
	version INTEGER,
	sid IssuerAndSerialNumber,
	digestAlgorithm AlgorithmIdentifier,
	signedAttrs [0] IMPLICIT SET OF Attribute OPTIONAL,
	signatureAlgorithm AlgorithmIdentifier,
	signature OCTET STRING
}

SignedData ::= SEQUENCE {
	version INTEGER,
	digestAlgorithms SET OF AlgorithmIdentifier,
	encapContentInfo EncapsulatedContentInfo,
	certificates [0] IMPLICIT ANY OPTIONAL,
	crls [1] IMPLICIT ANY OPTIONAL,
	signerInfos SET OF SignerInfo
}
`

// DefaultModule is the combined Certificate + CMS schema compiled into
// the engine at package init, per spec.md §4.1's "module name" concept.
var DefaultModule = MustLoad("ksba-go-default", grammarSource)

// Production names used by package der/certreader/cms to call
// DefaultModule.Expand. Kept as constants so a typo surfaces at compile
// time rather than as a runtime ErrSchemaReference.
const (
	ProdCertificate             = "Certificate"
	ProdTBSCertificate          = "TBSCertificate"
	ProdName                    = "Name"
	ProdExtension               = "Extension"
	ProdExtensions              = "Extensions"
	ProdAlgorithmIdentifier     = "AlgorithmIdentifier"
	ProdBasicConstraints        = "BasicConstraints"
	ProdKeyUsage                = "KeyUsage"
	ProdCertificatePolicies     = "CertificatePolicies"
	ProdAuthorityKeyIdentifier  = "AuthorityKeyIdentifier"
	ProdCRLDistributionPoints   = "CRLDistributionPoints"
	ProdSubjectAltName          = "SubjectAltName"
	ProdIssuerAltName           = "IssuerAltName"
	ProdGeneralNames            = "GeneralNames"
	ProdContentInfo             = "ContentInfo"
	ProdEncapsulatedContentInfo = "EncapsulatedContentInfo"
	ProdSignedData              = "SignedData"
	ProdSignerInfo              = "SignerInfo"
	ProdAttribute               = "Attribute"
	ProdIssuerAndSerialNumber   = "IssuerAndSerialNumber"
	ProdSignedAttributes        = "SignedAttributes"
)
