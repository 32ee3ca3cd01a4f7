package query

// understandingSystem primes the model for requirement extraction.
const understandingSystem = `You are a cloud infrastructure expert assistant. Your job is to analyze user queries about cloud infrastructure needs and extract structured requirements.

You understand AWS, Google Cloud Platform (GCP), and Azure services including:
- Compute: VMs, EC2, Compute Engine
- Databases: RDS, Cloud SQL, DynamoDB, Firestore, etc.
- Storage: S3, Cloud Storage, Blob Storage
- Serverless: Lambda, Cloud Functions, Azure Functions
- Containers: ECS, EKS, GKE, Cloud Run, AKS
- And more

You must respond with valid JSON only. No markdown, no explanation, just the JSON object. All numeric values must be actual numbers, not expressions or calculations.`

// understandingPrompt asks for a JSON object matching the Requirements
// schema. The query is substituted for %q.
const understandingPrompt = `Analyze this cloud infrastructure query and extract structured requirements.

USER QUERY: %q

Extract the following information and return as JSON:

{
    "service_categories": ["list of relevant categories: compute, database, storage, serverless, container, kubernetes"],
    "expected_users": null or number,
    "expected_requests_per_second": null or number,
    "data_size_gb": null or number,
    "min_vcpu": null or number,
    "min_memory_gb": null or number,
    "min_storage_gb": null or number,
    "budget_monthly_usd": null or number,
    "budget_hourly_usd": null or number,
    "preferred_providers": ["aws", "gcp", "azure" - only if explicitly mentioned],
    "preferred_regions": ["list of regions if mentioned"],
    "database_engine": null or "mysql"/"postgresql"/"mongodb"/etc,
    "requires_high_availability": true/false,
    "requires_auto_scaling": true/false,
    "requires_encryption": true/false,
    "use_case": "brief description of use case",
    "keywords": ["important technical keywords from the query"]
}

Rules:
- Only include values that are explicitly stated or strongly implied
- Use null for unknown values
- Budget can be monthly or hourly - convert if needed (assume 730 hours/month)
- Extract specific numbers when mentioned (e.g., "10k users" = 10000)
- Identify database engines when database services are requested
- Set high_availability true if words like "production", "critical", "99.9%%" are used
- Set auto_scaling true if "scalable", "elastic", "growing" are mentioned

Return ONLY the JSON object, no explanation.`

// expansionPrompt asks for a retrieval-oriented expansion of the query.
// The original query and requirements JSON are substituted in order.
const expansionPrompt = `Given this cloud infrastructure query, generate an expanded search query that includes relevant synonyms and related terms.

ORIGINAL QUERY: %q

EXTRACTED REQUIREMENTS:
%s

Generate an expanded query string that:
1. Includes the original key terms
2. Adds synonyms (e.g., "database" -> "database, DB, data store, relational")
3. Adds related cloud service names (e.g., "managed database" -> "RDS, Cloud SQL, Aurora")
4. Adds relevant technical terms
5. Keeps it concise (max 100 words)

Return ONLY the expanded query string, no explanation or quotes.`
